// Package reflection implements the journal's reflection engine: silence
// detection, weekly summaries and the prompts built from them.
//
// The package supports:
//   - Silence detection against the user's silence threshold
//   - One silence prompt per continuous silence episode
//   - Weekly summaries (emotions, confidence, decision types, categories, tags)
//   - Confidence trend against the user's historical baseline
//   - Context-aware reflection questions and suggested actions
//   - Perspective card gating and selection per display context
//   - Rendering a weekly reflection as text or markdown
//
// # Tone
//
// Every canned message comes from a tone table keyed by journal.Tone
// (neutral, gentle, direct). Unknown tones fall back to gentle.
//
// # Randomness
//
// Message choice goes through a pick.Picker injected into the Engine, so
// tests can pin the chosen message:
//
//	engine := reflection.NewEngine(clock, pick.First())
//	weekly := engine.GenerateWeeklyReflection(receipts, moments, allReceipts, settings)
//
// When several context triggers fire at once the engine picks uniformly
// among all of their candidate messages.
package reflection
