package fsm

// Builder provides a fluent, programmatic alternative to decoding an
// FsmModel from JSON/YAML — handy for small models defined inline in
// Go code (examples, tests) rather than authored as IR documents.
type Builder struct {
	model *FsmModel
}

// NewBuilder starts a new model under construction.
func NewBuilder() *Builder {
	return &Builder{model: NewFsmModel()}
}

// State adds a leaf state and returns the Builder for chaining.
func (b *Builder) State(name string, opts ...func(*State)) *Builder {
	s := &State{Name: name}
	for _, opt := range opts {
		opt(s)
	}
	b.model.AddState(s)
	return b
}

// Initial marks a State option's state as the level's initial state.
func Initial() func(*State) { return func(s *State) { s.IsInitial = true } }

// Final marks a State option's state as final.
func Final() func(*State) { return func(s *State) { s.IsFinal = true } }

// Entry attaches an entry action.
func Entry(language, source string) func(*State) {
	return func(s *State) { s.EntryAction = &CodeBlock{Language: language, Source: source} }
}

// During attaches a during action.
func During(language, source string) func(*State) {
	return func(s *State) { s.DuringAction = &CodeBlock{Language: language, Source: source} }
}

// Exit attaches an exit action.
func Exit(language, source string) func(*State) {
	return func(s *State) { s.ExitAction = &CodeBlock{Language: language, Source: source} }
}

// Breakpoint marks the state to pause the engine right after its entry
// action runs.
func Breakpoint() func(*State) { return func(s *State) { s.BreakpointOnEntry = true } }

// SubMachine attaches a nested FsmModel built separately, turning this
// state into a superstate.
func SubMachine(sub *FsmModel) func(*State) {
	return func(s *State) { s.SubMachine = sub }
}

// Transition adds a transition and returns the Builder for chaining.
func (b *Builder) Transition(source, target string, opts ...func(*Transition)) *Builder {
	t := Transition{SourceName: source, TargetName: target}
	for _, opt := range opts {
		opt(&t)
	}
	b.model.AddTransition(t)
	return b
}

// OnEvent constrains a Transition option's transition to fire only on
// the named event.
func OnEvent(name string) func(*Transition) {
	return func(t *Transition) { t.Event = &name }
}

// Guard attaches a condition code block to a transition.
func Guard(language, source string) func(*Transition) {
	return func(t *Transition) { t.Condition = &CodeBlock{Language: language, Source: source} }
}

// Action attaches an action code block to a transition.
func Action(language, source string) func(*Transition) {
	return func(t *Transition) { t.Action = &CodeBlock{Language: language, Source: source} }
}

// FireBreakpoint marks a transition to pause the engine once it fires.
func FireBreakpoint() func(*Transition) {
	return func(t *Transition) { t.BreakpointOnFire = true }
}

// Variable declares a variable with an optional initial value.
func (b *Builder) Variable(name string, t VarType, initial *Value) *Builder {
	b.model.DeclareVariable(name, t, initial)
	return b
}

// Build returns the assembled model without validating it; NewEngine
// runs Validate itself.
func (b *Builder) Build() *FsmModel {
	return b.model
}
