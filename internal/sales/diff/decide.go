package diff

import "context"

// Choice is the answer to a Decision.
type Choice int

const (
	ChoiceCancel Choice = iota
	ChoiceConfirm
	ChoiceUseServer
	ChoiceUseCache
)

func (c Choice) String() string {
	switch c {
	case ChoiceConfirm:
		return "confirm"
	case ChoiceUseServer:
		return "server"
	case ChoiceUseCache:
		return "cache"
	default:
		return "cancel"
	}
}

// ParseChoice maps the wire names of String back to a Choice. Unknown names cancel.
func ParseChoice(s string) Choice {
	switch s {
	case "confirm":
		return ChoiceConfirm
	case "server":
		return ChoiceUseServer
	case "cache":
		return ChoiceUseCache
	default:
		return ChoiceCancel
	}
}

// Decision is a question put to whoever drives the workflow, with the differences that prompted it.
type Decision struct {
	Kind        string       `json:"kind"`
	Differences []Difference `json:"differences"`
}

// Decider answers Decisions synchronously.
type Decider interface {
	Decide(ctx context.Context, d Decision) Choice
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, d Decision) Choice

func (f DeciderFunc) Decide(ctx context.Context, d Decision) Choice {
	return f(ctx, d)
}

// Fixed always answers with the same Choice.
func Fixed(c Choice) Decider {
	return DeciderFunc(func(context.Context, Decision) Choice { return c })
}
