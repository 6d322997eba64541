package results

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Notification is the body of POST /api/actualizar_resultado, sent by the
// voice bot at the end of a conversation. Only Phone is required.
type Notification struct {
	Phone string `json:"telefono"`

	StatusLevel1 string `json:"status_level_1,omitempty"`
	StatusLevel2 string `json:"status_level_2,omitempty"`

	ConPack   *FlexBool `json:"conPack,omitempty"`
	NuevaCita string    `json:"nuevaCita,omitempty"`
	HoraCita  string    `json:"horaCita,omitempty"`

	CodigoNoInteres    FlexCode `json:"codigoNoInteres,omitempty"`
	CodigoVolverLlamar string   `json:"codigoVolverLlamar,omitempty"`
	RazonNoInteres     string   `json:"razonNoInteres,omitempty"`
	HoraRellamada      string   `json:"horaRellamada,omitempty"`

	NoInteresado      FlexBool `json:"noInteresado,omitempty"`
	Buzon             FlexBool `json:"buzon,omitempty"`
	VolverALlamar     FlexBool `json:"volverALlamar,omitempty"`
	ErrorTecnico      FlexBool `json:"errorTecnico,omitempty"`
	LlamaraInteresado FlexBool `json:"llamaraInteresado,omitempty"`

	CallResult    string `json:"callResult,omitempty"`
	FechaDeseada  string `json:"fechaDeseada,omitempty"`
	PreferenciaMT string `json:"preferenciaMT,omitempty"`

	// CallID links the notification to the provider call already recorded
	// by the dispatcher, if any.
	CallID string `json:"callId,omitempty"`
}

// Response is returned to the bot on success.
type Response struct {
	Success      bool       `json:"success"`
	LeadID       int64      `json:"lead_id"`
	Outcome      string     `json:"outcome"`
	Action       string     `json:"action"`
	StatusLevel1 string     `json:"status_level_1,omitempty"`
	StatusLevel2 string     `json:"status_level_2,omitempty"`
	Attempts     int        `json:"call_attempts_count"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
	Message      string     `json:"message,omitempty"`
}

var (
	ErrPhoneRequired = errors.New("results: telefono is required")
	ErrInvalidPhone  = errors.New("results: invalid telefono")
	ErrInvalidDate   = errors.New("results: invalid nuevaCita")
	ErrLeadNotFound  = errors.New("results: no lead with that phone")
)

// FlexBool accepts true/false, 0/1 and the usual Spanish and English words.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case bool:
		*b = FlexBool(x)
	case float64:
		*b = x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true", "yes", "si", "sí", "on":
			*b = true
		default:
			*b = false
		}
	default:
		*b = false
	}
	return nil
}

// Ptr converts an optional flag to *bool.
func (b *FlexBool) Ptr() *bool {
	if b == nil {
		return nil
	}
	v := bool(*b)
	return &v
}

// FlexCode accepts a code string or a list whose first element is the code.
type FlexCode string

func (c *FlexCode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = FlexCode(strings.TrimSpace(s))
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*c = ""
	if len(list) > 0 {
		*c = FlexCode(strings.TrimSpace(list[0]))
	}
	return nil
}
