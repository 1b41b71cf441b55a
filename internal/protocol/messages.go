package protocol

// HELLO (host -> sidecar)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ServerName      string `json:"server_name,omitempty"`
}

// WELCOME (sidecar -> host)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	CurrencyItem    string      `json:"currency_item"`
	Offers          []OfferInfo `json:"offers"`
}

type OfferInfo struct {
	ID            string `json:"id"`
	Command       string `json:"command"`
	Quota         string `json:"quota"`
	Pricing       string `json:"pricing"`
	BlocksPerUnit int    `json:"blocks_per_unit,omitempty"`
	PricePerUnit  int    `json:"price_per_unit"`
}

// COMMAND (host -> sidecar): one chat command issued by a player.
type CommandMsg struct {
	Type      string         `json:"type"`
	RequestID string         `json:"request_id"`
	Player    PlayerSnapshot `json:"player"`
	Text      string         `json:"text"`
}

type PlayerSnapshot struct {
	ID          string              `json:"id"`
	Name        string              `json:"name,omitempty"`
	Privileges  []string            `json:"privileges,omitempty"`
	Quotas      Quotas              `json:"quotas"`
	Inventories []InventorySnapshot `json:"inventories,omitempty"`
}

type Quotas struct {
	ClaimVolume int `json:"claim_volume"`
	ClaimAreas  int `json:"claim_areas"`
}

type InventorySnapshot struct {
	Class string         `json:"class"`
	Size  int            `json:"size"`
	Slots []SlotSnapshot `json:"slots,omitempty"`
}

type SlotSnapshot struct {
	Slot  int    `json:"slot"`
	Item  string `json:"item"`
	Count int    `json:"count"`
}

// RESULT (sidecar -> host)
type ResultMsg struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	OK        bool   `json:"ok"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	ChatType  string `json:"chat_type,omitempty"`
	Sound     string `json:"sound,omitempty"`
	ReceiptID string `json:"receipt_id,omitempty"`

	SlotUpdates  []SlotUpdate `json:"slot_updates,omitempty"`
	QuotaUpdates *Quotas      `json:"quota_updates,omitempty"`
}

// SlotUpdate carries the new content of one slot. Count 0 means cleared.
type SlotUpdate struct {
	Class string `json:"class"`
	Slot  int    `json:"slot"`
	Item  string `json:"item,omitempty"`
	Count int    `json:"count"`
}
