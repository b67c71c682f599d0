package reflection

import "github.com/fyrsmithlabs/contextlog/internal/journal"

// ToneConfig holds the canned messages for one tone.
type ToneConfig struct {
	SilencePrompts      []string
	ReflectionQuestions []string
	SuggestedActions    []string
}

// Tones maps each tone to its message pools.
var Tones = map[journal.Tone]ToneConfig{
	journal.ToneNeutral: {
		SilencePrompts: []string{
			"It's been quiet here. Anything worth noting?",
			"Some time has passed. What's been on your mind?",
			"A gap in the record. Want to fill it in?",
		},
		ReflectionQuestions: []string{
			"What's something you noticed this week?",
			"Any decisions still sitting with you?",
			"What felt different about this week?",
		},
		SuggestedActions: []string{
			"Consider noting one thing before the week ends.",
			"A quick moment capture might help.",
			"Even a small note can provide future context.",
		},
	},
	journal.ToneGentle: {
		SilencePrompts: []string{
			"When you're ready, there's space here.",
			"No rush. Just here when you need it.",
			"The record is patient. So are we.",
		},
		ReflectionQuestions: []string{
			"What's been weighing on you, if anything?",
			"Is there something you'd want your future self to know?",
			"What mattered this week, even if it seemed small?",
		},
		SuggestedActions: []string{
			"If something comes to mind, you could jot it down.",
			"Sometimes a brief note helps clear the mind.",
			"There's no pressure—just an option.",
		},
	},
	journal.ToneDirect: {
		SilencePrompts: []string{
			"Nothing logged recently. Time to check in.",
			"Gap detected. Worth documenting?",
			"Silence in the record. Intentional?",
		},
		ReflectionQuestions: []string{
			"What decision are you avoiding?",
			"What's the one thing you should have logged?",
			"What pattern are you noticing?",
		},
		SuggestedActions: []string{
			"Log one receipt or moment now.",
			"Document that pending decision.",
			"Capture what you're thinking before it fades.",
		},
	},
}

// resolveTone returns tone if it has a table, otherwise gentle.
func resolveTone(tone journal.Tone) journal.Tone {
	if _, ok := Tones[tone]; ok {
		return tone
	}
	return journal.ToneGentle
}

// toneConfig returns the message pools for tone.
func toneConfig(tone journal.Tone) ToneConfig {
	return Tones[resolveTone(tone)]
}

// anxiousEmotions are the emotions that count as tension in a summary.
var anxiousEmotions = map[string]bool{
	"anxious":   true,
	"pressured": true,
	"uncertain": true,
	"scared":    true,
}
