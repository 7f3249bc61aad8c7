//go:build !jack

package host

// Default creates simulated hosts; build with -tags jack for a JACK client
func Default(opts SimOptions) Factory { return SimFactory(opts) }
