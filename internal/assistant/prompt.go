package assistant

import (
	"fmt"
	"strings"
)

// SystemPrompt builds the instructions sent ahead of a caregiver's question.
// The profile carries only what the stand-in app stores about a patient.
func SystemPrompt(patientName, question string) string {
	var b strings.Builder
	b.WriteString("You are an expert medical AI assistant for a caregiver. ")
	b.WriteString("Your role is to analyze patient data and provide clear, concise, and helpful answers. ")
	b.WriteString("Be professional and empathetic.\n\n")
	b.WriteString("Here is the patient's data:\n")
	fmt.Fprintf(&b, "- Name: %s\n", patientName)
	b.WriteString("- Age: (Not provided in schema)\n")
	b.WriteString("- Gender: (Not provided in schema)\n\n")
	b.WriteString("Medications:\nNo medications listed.\n\n")
	b.WriteString("Recent Mood Logs (last 7 days):\nNo recent mood logs.\n\n")
	b.WriteString("Based on this data, please answer the following question from the caregiver. ")
	b.WriteString("If the question is outside the scope of the provided data (e.g., asking for a diagnosis), ")
	b.WriteString("politely decline and advise consulting a doctor.\n\n")
	fmt.Fprintf(&b, "Caregiver's question: \"%s\"", question)
	return b.String()
}
