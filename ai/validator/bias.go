package validator

// biasKeywords flags vote recommendations, candidate/party preferences,
// and endorsements in English and Spanish. Matched case-insensitively
// as substrings of the response text.
var biasKeywords = []string{
	// English voting recommendations
	"should vote for",
	"you should vote",
	"recommend voting for",
	"recommend you vote for",
	"suggest voting for",
	"suggest you vote for",

	// English candidate/party preferences
	"best candidate",
	"better candidate",
	"superior candidate",
	"best party",
	"better party",
	"superior party",
	"more trustworthy",
	"more qualified",
	"more experienced than",

	// English policy opinions
	"superior policy",
	"better policy",
	"best policy",
	"right choice",
	"wrong choice",
	"smart choice",
	"foolish choice",

	// English endorsements
	"support this candidate",
	"support this party",
	"endorse",
	"back this candidate",

	// Spanish voting recommendations
	"deberías votar por",
	"debe votar por",
	"recomiendo votar",
	"sugiero votar",

	// Spanish candidate/party preferences
	"mejor candidato",
	"mejor partido",
	"candidato superior",
	"partido superior",
	"más confiable",
	"más calificado",

	// Spanish policy opinions
	"mejor política",
	"política superior",
	"elección correcta",
	"elección incorrecta",

	// Spanish endorsements
	"apoyar este candidato",
	"apoyar este partido",
	"respaldar",
}

// hedgingMarkers indicate a response is not asserting facts outright,
// which relaxes the citation requirement for fact-bearing intents.
var hedgingMarkers = []string{
	"i'm not sure",
	"i am not sure",
	"i don't know",
	"it may be",
	"it might be",
	"possibly",
	"perhaps",
	"could not find",
	"unable to find",
	"no estoy seguro",
	"no lo sé",
	"es posible que",
	"tal vez",
	"quizás",
	"no pude encontrar",
}
