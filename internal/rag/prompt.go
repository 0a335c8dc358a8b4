package rag

import "strings"

const promptTemplate = `Tu es un expert en analyse de documents techniques.
Voici des extraits pertinents :

{context}

Question : {question}

Consignes :
- Réponds de manière précise et technique
- Si l'information exacte n'est pas dans les extraits, dis simplement "Je n'ai pas trouvé l'information dans les documents"
- Ne fais pas référence aux métadonnées ou aux scores

Réponse :
`

// BuildPrompt fills the answer template.
func BuildPrompt(context, question string) string {
	return strings.NewReplacer("{context}", context, "{question}", question).Replace(promptTemplate)
}
