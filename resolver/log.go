package resolver

import (
	logx "github.com/ije/gox/log"
)

var log = &logx.Logger{}

// SetLogger sets the logger used for debug output of the resolver.
func SetLogger(l *logx.Logger) {
	log = l
}
