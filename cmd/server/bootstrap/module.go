// Package bootstrap wires the booking service together with fx.  Each file
// contributes one module; main composes them and adds the HTTP server.
package bootstrap

import "go.uber.org/fx"

// Module is the whole application minus the HTTP listener.
var Module = fx.Options(
	ConfigModule,
	InfraModule,
	RealtimeModule,
	ServiceModule,
	WorkerModule,
	HTTPModule,
)
