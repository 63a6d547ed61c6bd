package ticket

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// CollectedVersion is the current layout of tickets.collected_data.
const CollectedVersion = 1

var ErrCollectedData = errors.New("ticket: invalid collected data")

// Collected is the JSON record kept in tickets.collected_data. Known trade
// fields are typed; anything else collected by custom steps lands in Extra.
type Collected struct {
	Version     int               `mapstructure:"version" json:"version"`
	UserItem    string            `mapstructure:"user_item" json:"user_item,omitempty"`
	UserQty     string            `mapstructure:"user_qty" json:"user_qty,omitempty"`
	PartnerItem string            `mapstructure:"partner_item" json:"partner_item,omitempty"`
	PartnerQty  string            `mapstructure:"partner_qty" json:"partner_qty,omitempty"`
	Partner     string            `mapstructure:"partner" json:"partner,omitempty"`
	Tip         string            `mapstructure:"tip" json:"tip,omitempty"`
	Answers     map[string]string `mapstructure:"answers" json:"answers,omitempty"`
	RunID       string            `mapstructure:"run_id" json:"run_id,omitempty"`
	StartedAt   int64             `mapstructure:"started_at" json:"started_at,omitempty"`
	MessageRef  string            `mapstructure:"message_id" json:"message_id,omitempty"`
	ResumeStep  int               `mapstructure:"resume_step" json:"resume_step,omitempty"`
	ChainStepID int64             `mapstructure:"chain_step_id" json:"chain_step_id,omitempty"`
	Extra       map[string]any    `mapstructure:",remain" json:"-"`
}

// DecodeCollected parses a collected_data column. Rows written before the
// record was versioned are upgraded in place.
func DecodeCollected(raw string) (Collected, error) {
	c := Collected{Version: CollectedVersion}
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "{}" || raw == "null" {
		return c, nil
	}

	var generic map[string]any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return Collected{}, fmt.Errorf("%w: %v", ErrCollectedData, err)
	}

	c = Collected{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &c,
	})
	if err != nil {
		return Collected{}, err
	}
	if err := decoder.Decode(generic); err != nil {
		return Collected{}, fmt.Errorf("%w: %v", ErrCollectedData, err)
	}

	if c.Version == 0 {
		c.upgradeLegacy()
	}
	if c.Version > CollectedVersion {
		return Collected{}, fmt.Errorf("%w: unsupported version %d", ErrCollectedData, c.Version)
	}
	if c.ResumeStep < 0 {
		return Collected{}, fmt.Errorf("%w: negative resume step", ErrCollectedData)
	}
	return c, nil
}

// upgradeLegacy maps the unversioned layout, which named the partner field
// partner_id, onto the current record.
func (c *Collected) upgradeLegacy() {
	if v, ok := c.Extra["partner_id"]; ok {
		if c.Partner == "" {
			c.Partner = fmt.Sprint(v)
		}
		delete(c.Extra, "partner_id")
	}
	c.Version = CollectedVersion
}

func (c Collected) Encode() (string, error) {
	c.Version = CollectedVersion
	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	if len(c.Extra) == 0 {
		return string(raw), nil
	}

	merged := make(map[string]any, len(c.Extra)+8)
	for k, v := range c.Extra {
		merged[k] = v
	}
	var known map[string]any
	if err := json.Unmarshal(raw, &known); err != nil {
		return "", err
	}
	for k, v := range known {
		merged[k] = v
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Data flattens the collected fields into the flow engine's data map.
func (c Collected) Data() map[string]string {
	data := make(map[string]string, 6+len(c.Extra))
	for k, v := range c.Extra {
		if v == nil {
			continue
		}
		data[k] = fmt.Sprint(v)
	}
	set := func(key, value string) {
		if value != "" {
			data[key] = value
		}
	}
	set("user_item", c.UserItem)
	set("user_qty", c.UserQty)
	set("partner_item", c.PartnerItem)
	set("partner_qty", c.PartnerQty)
	set("partner", c.Partner)
	set("tip", c.Tip)
	return data
}

// SetData replaces the collected fields with data.
func (c *Collected) SetData(data map[string]string) {
	c.UserItem, c.UserQty, c.PartnerItem, c.PartnerQty, c.Partner, c.Tip = "", "", "", "", "", ""
	c.Extra = nil
	c.MergeData(data)
}

// MergeData overwrites the given fields and keeps the rest.
func (c *Collected) MergeData(data map[string]string) {
	for k, v := range data {
		switch k {
		case "user_item":
			c.UserItem = v
		case "user_qty":
			c.UserQty = v
		case "partner_item":
			c.PartnerItem = v
		case "partner_qty":
			c.PartnerQty = v
		case "partner":
			c.Partner = v
		case "tip":
			c.Tip = v
		default:
			if c.Extra == nil {
				c.Extra = make(map[string]any)
			}
			c.Extra[k] = v
		}
	}
}

// resetRun drops flow bookkeeping but keeps what the user told us.
func (c *Collected) resetRun() {
	c.Answers = nil
	c.RunID = ""
	c.StartedAt = 0
	c.MessageRef = ""
	c.ResumeStep = 0
}
