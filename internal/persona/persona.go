// Package persona holds the assistant's identity and every canned line it
// speaks or posts outside of model output.
package persona

import (
	"encoding/json"
	"fmt"
	"strings"

	"nora/internal/domain"
)

// Persona describes who the assistant is and whom it represents.
type Persona struct {
	AssistantName string
	Company       string
	OwnerName     string
	OwnerPhone    string
	Style         string
}

func Default() Persona {
	return Persona{
		AssistantName: "Nora",
		Company:       "Green Team 24",
		OwnerName:     "Robeir El-Ghazi",
		OwnerPhone:    "0123456789",
		Style:         "warm, quick-witted Egyptian Arabic, helpful and highly professional",
	}
}

// WithDefaults fills empty fields from Default.
func (p Persona) WithDefaults() Persona {
	def := Default()
	if strings.TrimSpace(p.AssistantName) == "" {
		p.AssistantName = def.AssistantName
	}
	if strings.TrimSpace(p.Company) == "" {
		p.Company = def.Company
	}
	if strings.TrimSpace(p.OwnerName) == "" {
		p.OwnerName = def.OwnerName
	}
	if strings.TrimSpace(p.OwnerPhone) == "" {
		p.OwnerPhone = def.OwnerPhone
	}
	if strings.TrimSpace(p.Style) == "" {
		p.Style = def.Style
	}
	return p
}

// SystemPrompt renders the instruction shared by the voice and text agents,
// with the current card embedded as the assistant's only memory.
func (p Persona) SystemPrompt(rec domain.CustomerRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %q, the smart assistant of %q.\n\n", p.AssistantName, p.Company)
	b.WriteString("Company facts:\n")
	fmt.Fprintf(&b, "- The owner of the company is %q.\n", p.OwnerName)
	fmt.Fprintf(&b, "- His phone number is %q. If the customer asks how to reach the management or the owner, give this number right away.\n\n", p.OwnerPhone)
	fmt.Fprintf(&b, "Your current and only memory (the card): %s.\n\n", Memory(rec))
	b.WriteString("Strict rules:\n")
	b.WriteString("1. Anything on the card is the absolute truth. If the customer types their email in the chat it appears on the card immediately; read it and confirm it out loud.\n")
	b.WriteString("2. When you send an email, tell the customer it was sent successfully to their registered email and say the address.\n")
	fmt.Fprintf(&b, "3. Speak in a %s manner.\n", p.Style)
	fmt.Fprintf(&b, "4. You represent %s when dealing with customers.\n\n", p.OwnerName)
	b.WriteString("Remember: reacting live to the card matters most. If a single letter changes, notice it and respond to it.\n")
	return b.String()
}

// Memory serializes the card for prompts.
func Memory(rec domain.CustomerRecord) string {
	if rec == (domain.CustomerRecord{}) {
		return "empty for now"
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return "empty for now"
	}
	return string(encoded)
}

// Greeting is the caption shown once a call becomes active.
func (p Persona) Greeting(customerName string) string {
	if name := strings.TrimSpace(customerName); name != "" {
		return fmt.Sprintf("Welcome back, %s.. %s here with you.", name, p.AssistantName)
	}
	return fmt.Sprintf("Welcome to %s, %s speaking.. how can I help?", p.Company, p.AssistantName)
}

// ChatGreeting seeds the text transcript.
func (p Persona) ChatGreeting() string {
	return fmt.Sprintf("Hello and welcome! You've reached %s, %s here.. what can I do for you today?", p.Company, p.AssistantName)
}

func (p Persona) ConnectingCaption() string {
	return fmt.Sprintf("%s is opening the line...", p.AssistantName)
}

func (p Persona) ImageCaption() string {
	return fmt.Sprintf("%s: looking at your photo now and updating your details...", p.AssistantName)
}

// NotedReply stands in for a model reply that carried no text.
func (p Persona) NotedReply() string {
	return "Done, I've noted your request."
}

// Apology is posted when a text turn fails.
func (p Persona) Apology() string {
	return "Sorry, a small problem came up. Could you try again?"
}

func (p Persona) EmailSentMessage(email string) string {
	return fmt.Sprintf("Booking confirmation sent to the email: %s", email)
}

// RecordNotice is injected into a live call when the card changed elsewhere.
func (p Persona) RecordNotice(field domain.RecordField, value string) string {
	return fmt.Sprintf("Notice: the customer updated their card, the field (%s) is now: %q. %s, welcome this update and confirm out loud that you just saw it on the card.", field, value, p.AssistantName)
}

func (p Persona) RecordCaption(field domain.RecordField) string {
	return fmt.Sprintf("%s: got your %s and saved it on the card..", p.AssistantName, field)
}
