package conversation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/YelzhanWeb/pizzaline/internal/domain"
)

const (
	renegotiateTag = "[renegotiate]"
	fallbackReply  = "Mi scusi, non ho capito bene. Può ripetere?"
	confirmedReply = "Ordine confermato! La aspettiamo alle %s. Grazie!"

	emptyOrderAgentPrompt = renegotiateTag + " Il cliente ha confermato ma l'ordine è vuoto. Chiedi cosa desidera ordinare."
	emptyOrderReply       = "L'ordine al momento è vuoto. Cosa desidera ordinare?"
)

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "lunedì",
	time.Tuesday:   "martedì",
	time.Wednesday: "mercoledì",
	time.Thursday:  "giovedì",
	time.Friday:    "venerdì",
	time.Saturday:  "sabato",
	time.Sunday:    "domenica",
}

// systemPrompt opens every session: it gives the agent the menu and hours
// and asks it to restate the whole order in a fenced json block each turn
func systemPrompt(b *domain.Business, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Sei l'assistente telefonico di %s, una pizzeria. Stai prendendo un ordine da asporto.\n", b.Name)
	sb.WriteString("Sii cordiale ma breve. Chiedi il nome del cliente, cosa desidera ordinare e a che ora passa a ritirare.\n")
	sb.WriteString("Se il cliente detta un numero di telefono riportalo in customer_phone.\n")
	fmt.Fprintf(&sb, "Oggi è %s %s.\n", weekdayNames[now.Weekday()], now.Format(domain.DateLayout))
	fmt.Fprintf(&sb, "Orari di apertura: %s.\n", formatHours(b))
	sb.WriteString("Menu:\n")
	for _, item := range b.Menu {
		fmt.Fprintf(&sb, "- %s (%s): %.2f EUR", item.Name, item.Category, item.Price)
		if item.Description != "" {
			fmt.Fprintf(&sb, ", %s", item.Description)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Prima di chiudere riepiloga l'ordine e chiedi conferma.\n")
	sb.WriteString("Termina OGNI risposta con un blocco ```json che riporta l'ordine completo attuale, non solo le modifiche, nel formato:\n")
	sb.WriteString("```json\n{\"items\":[{\"name\":\"Margherita\",\"quantity\":2}],\"customer_name\":\"Mario\",\"pickup_time\":\"19:30\",\"pickup_date\":\"oggi\"}\n```")
	return sb.String()
}

func formatHours(b *domain.Business) string {
	days := make([]time.Weekday, 0, len(b.Hours))
	for d := range b.Hours {
		days = append(days, d)
	}
	// lunedì first
	sort.Slice(days, func(i, j int) bool { return (days[i]+6)%7 < (days[j]+6)%7 })

	var parts []string
	for _, d := range days {
		var windows []string
		for _, w := range b.Hours[d].Windows {
			windows = append(windows, w.Open+"-"+w.Close)
		}
		if len(windows) == 0 {
			continue
		}
		parts = append(parts, weekdayNames[d]+" "+strings.Join(windows, ", "))
	}
	if len(parts) == 0 {
		return "nessun orario configurato"
	}
	return strings.Join(parts, "; ")
}

// capacityPrompts returns the note queued for the agent and the text for
// the customer when the requested slot is full
func capacityPrompts(e *domain.CapacityUnavailableError) (agent, customer string) {
	if e.Suggested != nil {
		agent = fmt.Sprintf("%s Lo slot delle %s del %s è pieno (liberi %d, richiesti %d). Proponi al cliente le %s e chiedi conferma.",
			renegotiateTag, e.Requested.Start, e.Requested.Date, e.Remaining, e.Units, e.Suggested.Start)
		customer = fmt.Sprintf("Mi dispiace, alle %s non riusciamo a preparare l'ordine. Il primo orario disponibile è alle %s: va bene?",
			e.Requested.Start, e.Suggested.Start)
		return agent, customer
	}
	agent = fmt.Sprintf("%s Nessuno slot disponibile il %s per %d pezzi. Chiedi al cliente un altro giorno.",
		renegotiateTag, e.Requested.Date, e.Units)
	customer = "Mi dispiace, per quel giorno non ci sono più orari disponibili per questo ordine. Vuole ritirarlo un altro giorno?"
	return agent, customer
}

// slotPrompts covers a missing, unreadable or closed pickup time
func slotPrompts(e *domain.SlotNotOpenError, b *domain.Business) (agent, customer string) {
	if e.Requested == "" {
		agent = renegotiateTag + " Il cliente ha confermato ma manca l'orario di ritiro. Chiedilo."
		customer = "Perfetto. A che ora passa a ritirare l'ordine?"
		return agent, customer
	}
	agent = fmt.Sprintf("%s L'orario richiesto (%s) non è valido: %s. Orari: %s. Chiedi un nuovo orario.",
		renegotiateTag, e.Requested, e.Reason, formatHours(b))
	customer = fmt.Sprintf("Mi dispiace, a quell'ora non possiamo. Siamo aperti %s. A che ora preferisce ritirare?", formatHours(b))
	return agent, customer
}
