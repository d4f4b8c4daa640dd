// Package access decides whether a viewer may see a book's full content.
package access

// Input is everything the gate looks at. It is recomputed whenever the viewer
// logs in or out, buys the book, or toggles preview mode.
type Input struct {
	Preview     bool
	UserPresent bool
	Purchased   bool
}

// Decision is the derived, never persisted, result of Evaluate.
type Decision struct {
	Authorized bool
	// NeedsLogin is set on a denial with nobody signed in, so the view can
	// offer a login affordance next to the way back to the catalog.
	NeedsLogin bool
}

// Evaluate applies the access rule: preview is always readable (the sample is
// limited elsewhere), otherwise a signed-in user must own this exact book.
func Evaluate(in Input) Decision {
	if in.Preview {
		return Decision{Authorized: true}
	}
	if in.UserPresent && in.Purchased {
		return Decision{Authorized: true}
	}
	return Decision{NeedsLogin: !in.UserPresent}
}
