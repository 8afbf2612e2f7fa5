package command

import "strings"

// Action is what a recognized phrase asks the assistant to do.
type Action int

const (
	Unrecognized Action = iota
	NavigateHome
	NavigateAbout
	ScrollDown
	ScrollUp
	ExitAssistant
)

// String returns the navigation command name sent to clients.
func (a Action) String() string {
	switch a {
	case NavigateHome:
		return "home"
	case NavigateAbout:
		return "about"
	case ScrollDown:
		return "scroll_down"
	case ScrollUp:
		return "scroll_up"
	case ExitAssistant:
		return "exit"
	default:
		return ""
	}
}

// IsNavigation reports whether a should be forwarded to the notification sink.
func (a Action) IsNavigation() bool {
	switch a {
	case NavigateHome, NavigateAbout, ScrollDown, ScrollUp:
		return true
	}
	return false
}

// Trigger pairs a substring with the action it selects.
type Trigger struct {
	Word   string
	Action Action
}

// Triggers is evaluated in order; the first contained word wins.
var Triggers = []Trigger{
	{Word: "home", Action: NavigateHome},
	{Word: "about", Action: NavigateAbout},
	{Word: "down", Action: ScrollDown},
	{Word: "up", Action: ScrollUp},
	{Word: "exit", Action: ExitAssistant},
}

// Interpret maps a transcribed phrase to an Action using case-insensitive
// substring matching against Triggers.
func Interpret(phrase string) Action {
	lower := strings.ToLower(phrase)
	for _, t := range Triggers {
		if strings.Contains(lower, t.Word) {
			return t.Action
		}
	}
	return Unrecognized
}
