package orchestrator

import "strings"

// All user-visible text for non-DONE outcomes comes from this fixed,
// policy-reviewed set. Raw error detail never reaches the response body.

var refusalTemplates = map[string]string{
	"en": "I can't make voting recommendations or share political opinions. " +
		"I can explain how elections work, how to register, and where to find official information.",
	"es": "No puedo hacer recomendaciones de voto ni compartir opiniones políticas. " +
		"Puedo explicarle cómo funcionan las elecciones, cómo registrarse y dónde encontrar información oficial.",
}

var clarificationTemplates = map[string]string{
	"en": "I'm not sure what you need. Could you tell me a bit more? " +
		"I can answer civic questions, guide you through procedures, or register a complaint.",
	"es": "No estoy seguro de qué necesita. ¿Podría darme más detalles? " +
		"Puedo responder preguntas cívicas, guiarle en trámites o registrar una denuncia.",
}

var fallbackTemplates = map[string]string{
	"en": "I apologize, but I'm unable to provide a complete answer to your question " +
		"while maintaining strict political neutrality. However, I can help you with:\n\n" +
		"- General information about government structure and processes\n" +
		"- Voting requirements and registration procedures\n" +
		"- Election dates and civic participation\n" +
		"- Official government resources and websites\n\n" +
		"Please visit https://www.usa.gov for comprehensive, official information, " +
		"or feel free to rephrase your question.",
	"es": "Disculpe, pero no puedo proporcionar una respuesta completa a su pregunta " +
		"mientras mantengo estricta neutralidad política. Sin embargo, puedo ayudarle con:\n\n" +
		"- Información general sobre la estructura y procesos del gobierno\n" +
		"- Requisitos y procedimientos de registro para votar\n" +
		"- Fechas de elecciones y participación cívica\n" +
		"- Recursos y sitios web oficiales del gobierno\n\n" +
		"Por favor visite https://www.usa.gov/espanol para información oficial completa, " +
		"o siéntase libre de reformular su pregunta.",
}

var serviceUnavailableTemplates = map[string]string{
	"en": "I'm sorry, the service is temporarily unavailable. Please try again in a moment.",
	"es": "Lo siento, el servicio no está disponible en este momento. Por favor intente de nuevo en unos instantes.",
}

func template(set map[string]string, language string) string {
	if strings.HasPrefix(strings.ToLower(language), "es") {
		return set["es"]
	}
	return set["en"]
}
