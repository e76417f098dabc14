package services

// ReportDisclaimer is attached verbatim to every final report.
const ReportDisclaimer = "Este informe es orientativo y no constituye un diagnóstico clínico. " +
	"Solo un profesional de la salud mental o del neurodesarrollo puede realizar una evaluación formal."

const systemPrompt = "Eres un asistente de orientación sobre neurodivergencia. Escribes en español, " +
	"con un tono cálido y sin emitir diagnósticos. Respondes únicamente con JSON válido que siga el esquema pedido."

const phase1Prompt = `Genera la introducción y las preguntas abiertas de la primera fase de exploración.
Devuelve: {"introduction": string, "questions": [string] (entre 6 y 8), "disclaimer": string}.
Datos:
`

const teaserPrompt = `A partir de las respuestas de la primera fase, escribe un avance breve.
Devuelve: {"title": string, "summary": string, "patterns": [string] (entre 2 y 4 etiquetas cortas), "closingLine": string}.
Datos:
`

const phase2Prompt = `Analiza las respuestas de la primera fase y prepara la segunda fase.
Devuelve: {"analysis": {"strengths": string, "challenges": string, "leadingHypothesis": string, "justification": string},
"questions": [string] (entre 4 y 6, para confirmar o descartar la hipótesis principal)}.
Datos:
`

const finalReportPrompt = `Redacta el informe final con toda la información.
Devuelve: {"hypothesis": string, "summary": string, "strengths": [string], "challenges": [string], "traits": [string],
"homeRecommendations": [string], "schoolRecommendations": [string], "professionalFollowUp": string, "disclaimer": string}.
Datos:
`
