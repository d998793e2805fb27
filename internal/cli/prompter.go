package cli

// Prompter abstracts the interactive terminal prompts so commands can be
// tested with a scripted fake.
type Prompter interface {
	Select(label string, items []string, defaultValue string) (int, string, error)
	Prompt(label string) (string, error)
	Confirm(label string, defaultYes bool) (bool, error)
}
