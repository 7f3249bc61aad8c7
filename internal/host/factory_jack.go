//go:build jack

package host

// Default creates JACK hosts
func Default(SimOptions) Factory {
	return func(name string, _ float64, _ int) (Host, error) { return NewJack(name) }
}
