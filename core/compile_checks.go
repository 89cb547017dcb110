package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Logger          = glog.Nop()
	_ LoggerProvider  = glog.ProviderFromLogger(glog.Nop())
	_ Clock           = SystemClock
	_ MetricsRecorder = NopMetricsRecorder{}
)
