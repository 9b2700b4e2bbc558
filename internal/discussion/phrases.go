package discussion

import "math/rand/v2"

// Canned text is selected without touching the generation backend. It exists
// for two reasons: the backend accepts one connection per conversation, so
// moderator lines spoken while a stream is still closing must not generate;
// and moderator speech must never fail visibly, so backend errors fall back
// to these pools.

var introFallbacks = []string{
	"Welcome everyone. Today we will be discussing the topic at hand. Each participant may speak when given the floor; raise your hand to request a turn. Let's keep the exchange respectful and on point. Let's begin.",
	"Good to have you all here. We'll run this as a moderated group discussion: share your view when you have the floor, and raise your hand when you'd like to respond. Over to our first speaker.",
}

var grantPhrases = []string{
	"Go ahead, you have the floor.",
	"Yes, please share your thoughts.",
	"The floor is yours.",
	"Please, go ahead.",
}

var transitionPhrases = []string{
	"Thank you. Who would like to build on that?",
	"Interesting point. Let's hear another perspective.",
	"Noted. Let's continue the discussion.",
	"Thank you for that. Moving on.",
}

const evaluationApology = "I'm sorry, the evaluation could not be generated at this time."

func pickIntroFallback() string {
	return introFallbacks[rand.IntN(len(introFallbacks))]
}

func pickGrantPhrase() string {
	return grantPhrases[rand.IntN(len(grantPhrases))]
}

func pickTransitionPhrase() string {
	return transitionPhrases[rand.IntN(len(transitionPhrases))]
}
