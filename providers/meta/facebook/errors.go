package facebook

import "errors"

var errMessageOrLink = errors.New("providers/meta/facebook: message or link is required")
