package core

var (
	_ IntegrationService = (*Service)(nil)
	_ Registry           = (*ProviderRegistry)(nil)
	_ IntegrationStore   = (*MemoryIntegrationStore)(nil)
	_ IntegrationLister  = (*MemoryIntegrationStore)(nil)
	_ IntegrationLocker  = (*MemoryIntegrationLocker)(nil)
	_ TryLocker          = (*MemoryIntegrationLocker)(nil)
	_ MetricsRecorder    = NopMetricsRecorder{}
	_ ConfigProvider     = (*CfgxConfigProvider)(nil)
	_ OptionsResolver    = GoOptionsResolver{}
	_ Refresher          = RefresherFunc(nil)
)
