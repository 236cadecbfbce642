// Package loader registers HTTP features with the Fiber app.
//
// Each feature implements the Feature interface:
//
//	type Feature interface {
//	    Name() string
//	    IsEnabled() bool
//	    Load(app fiber.Router) error
//	}
//
// The Manager loads every enabled feature in registration order.
package loader
