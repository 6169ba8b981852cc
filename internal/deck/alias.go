package deck

// Deprecated operation names kept for callers of earlier releases.
// Each forwards to its replacement and logs a notice the first time it
// is used in the process.

// Open shows the matching terminals.
//
// Deprecated: use Show.
func (d *Deck) Open(opts TargetOptions) error {
	d.warnOpen.Do(func() {
		d.logger.Warn("open is deprecated, use show", nil)
	})
	return d.Show(opts)
}

// Ask sends a named prompt.
//
// Deprecated: use Prompt.
func (d *Deck) Ask(opts SendOptions) error {
	d.warnAsk.Do(func() {
		d.logger.Warn("ask is deprecated, use prompt", nil)
	})
	return d.Prompt(opts)
}

// ToggleFocus toggles the matching terminals with the focus request
// set.
//
// Deprecated: use Toggle with Focus.
func (d *Deck) ToggleFocus(opts TargetOptions) error {
	d.warnToggleFocus.Do(func() {
		d.logger.Warn("toggle_focus is deprecated, use toggle with focus", nil)
	})
	return d.Toggle(ToggleOptions{
		Name:   opts.Name,
		Filter: opts.Filter,
		All:    opts.All,
		Focus:  true,
	})
}
