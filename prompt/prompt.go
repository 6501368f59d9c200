// Package prompt holds the Italian prompt templates and the renderers that
// fill them from conversation history and retrieved passages.
package prompt

import (
	"fmt"
	"strings"

	"github.com/GianmarcoBramucci/cri/index"
	"github.com/GianmarcoBramucci/cri/memory"
)

// System is the system prompt for every answer.
const System = `Sei l'assistente ufficiale della Croce Rossa Italiana (CRI).
Il tuo compito è fornire informazioni accurate e utili su:
- Storia, missione e valori della Croce Rossa Italiana
- Servizi offerti dalla CRI a livello nazionale e locale
- Procedure operative della CRI
- Regolamenti e statuti dell'organizzazione
- Modalità per diventare volontari o collaborare con la CRI
- Informazioni su corsi e formazione

Ricorda e tieni traccia di tutte le informazioni personali condivise dall'utente
durante la conversazione (nome, preferenze, dettagli biografici, richieste specifiche).
Queste informazioni hanno priorità rispetto ai documenti quando l'utente fa
riferimento a se stesso o a dettagli già condivisi.

Rispondi in italiano, in modo cortese e professionale. Basa le risposte sul
contesto fornito e sulla storia della conversazione. Se non conosci la risposta,
dillo chiaramente e suggerisci di contattare direttamente la Croce Rossa Italiana.

Non inventare informazioni non presenti nei documenti forniti.`

// Condense rewrites a follow-up into a standalone question.
const Condense = `Data la seguente conversazione e una domanda di follow-up, riformula la domanda di follow-up in una domanda autonoma e completa in italiano formale.

ISTRUZIONI IMPORTANTI:
1. Rispondi SOLO con la domanda riformulata, niente altro
2. La domanda riformulata deve essere COMPLETA e AUTONOMA
3. Deve SEMPRE terminare con un punto interrogativo
4. Deve mantenere tutti i dettagli rilevanti della domanda originale
5. Deve includere i riferimenti a informazioni personali menzionate in precedenza (nomi, preferenze, ecc.)
6. Non introdurre informazioni assenti dalla conversazione

Conversazione precedente:
{chat_history}

Domanda di follow-up: {question}

Domanda riformulata in italiano formale (solo la domanda, nient'altro):`

// RAG answers a question from retrieved passages.
const RAG = `### Obiettivo

Sei l'assistente virtuale ufficiale della Croce Rossa Italiana (CRI). Rispondi attenendoti esclusivamente ai documenti CRI e alle informazioni personali fornite dall'utente.

### Formato della risposta

* Italiano, tono professionale e istituzionale.
* Sintesi iniziale seguita dai dettagli.
* **Grassetto** per i punti chiave.
* Elenchi puntati o numerati per informazioni correlate.

### Avvertenze

1. Le informazioni personali condivise dall'utente hanno priorità assoluta.
2. Non inventare dati: usa solo i documenti CRI forniti.
3. Se il dato richiesto manca, rispondi:

   > «Mi dispiace, questa informazione non è presente nei documenti a mia disposizione. Ti suggerisco di contattare direttamente la Croce Rossa Italiana.»

### Contesto

Conversazione precedente:
{chat_history}

Domanda dell'utente:
{question}

Estratti da documenti CRI:
{context}
`

// NoContext answers when retrieval found nothing relevant.
const NoContext = `# Assistente Ufficiale della Croce Rossa Italiana (CRI)

## Memoria personale
Analizza con attenzione la storia della conversazione. Se l'utente ha menzionato il suo nome, dettagli personali o preferenze, ricordali e usali nella risposta quando appropriato.

## Conversazione precedente:
{chat_history}

## Informazione non disponibile

Non sono state trovate informazioni specifiche sulla domanda nei documenti ufficiali della CRI a disposizione.

## Risorse consigliate

* **Sito web ufficiale**: {website}
* **Comitato locale**: il Comitato CRI più vicino alla località dell'utente
* **Centralino nazionale**: {phone}
* **Email**: {email}

Offri assistenza su altri aspetti della Croce Rossa Italiana documentati (storia e principi, attività e servizi, volontariato, struttura organizzativa).

Domanda dell'utente: {question}

Risposta:`

// EmptyHistory is rendered in place of a conversation with no exchanges.
const EmptyHistory = "Nessuna conversazione precedente."

// Contact fills the contact placeholders of NoContext.
type Contact struct {
	Website string
	Email   string
	Phone   string
}

// FormatHistory renders exchanges oldest first as alternating
// "Utente:" / "Assistente:" lines.
func FormatHistory(history []memory.Exchange) string {
	if len(history) == 0 {
		return EmptyHistory
	}
	var b strings.Builder
	for i, ex := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Utente: %s\nAssistente: %s", ex.Question, ex.Answer)
	}
	return b.String()
}

// FormatContext numbers passages and labels each with its source.
func FormatContext(hits []index.Hit) string {
	var b strings.Builder
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s\n%s", i+1, label(h), strings.TrimSpace(h.Text))
	}
	return b.String()
}

func label(h index.Hit) string {
	switch {
	case h.Title != "" && h.Source != "":
		return fmt.Sprintf("%s (%s)", h.Title, h.Source)
	case h.Title != "":
		return h.Title
	case h.Source != "":
		return h.Source
	default:
		return h.DocumentID
	}
}

// Render substitutes {name} placeholders in template. Unknown placeholders
// are left untouched.
func Render(template string, vars map[string]string) string {
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// CondenseQuestion renders the condense prompt.
func CondenseQuestion(history []memory.Exchange, question string) string {
	return Render(Condense, map[string]string{
		"chat_history": FormatHistory(history),
		"question":     question,
	})
}

// Answer renders the RAG prompt, or the no-context prompt when hits is empty.
func Answer(history []memory.Exchange, question string, hits []index.Hit, contact Contact) string {
	vars := map[string]string{
		"chat_history": FormatHistory(history),
		"question":     question,
	}
	if len(hits) == 0 {
		vars["website"] = contact.Website
		vars["email"] = contact.Email
		vars["phone"] = contact.Phone
		return Render(NoContext, vars)
	}
	vars["context"] = FormatContext(hits)
	return Render(RAG, vars)
}
