package envelope

// Address identifies a message endpoint. Device is empty when the
// address refers to a whole identity rather than one of its devices.
type Address struct {
	Identity string `json:"identity"`
	Device   string `json:"device,omitempty"`
}

// Envelope is the hybrid-encrypted wire unit. The relay treats the
// ciphertext as opaque; only the addressing metadata is inspected.
//
// An envelope exists in two forms. A sender seals one envelope per
// logical message with the content key wrapped once per recipient
// device (WrappedKeys, keyed by device id). The relay projects a
// single-recipient form per delivery (WrappedKey set, To.Device set,
// WrappedKeys dropped). Conversation history keeps the multi-recipient
// form so every recipient device can decrypt it later.
type Envelope struct {
	Alg         string            `json:"alg"`
	From        Address           `json:"from"`
	To          Address           `json:"to"`
	WrappedKey  string            `json:"wrappedKey,omitempty"`
	WrappedKeys map[string]string `json:"wrappedKeys,omitempty"`
	IV          string            `json:"iv"`
	Ciphertext  string            `json:"ciphertext"`
	Timestamp   int64             `json:"timestamp"`
}

// ForDevice projects the envelope into its single-recipient delivery
// form for the given device. Reports false when the envelope carries
// no key material for that device.
func (e Envelope) ForDevice(deviceID string) (Envelope, bool) {
	out := e
	out.To.Device = deviceID
	out.WrappedKeys = nil

	if len(e.WrappedKeys) > 0 {
		wk, ok := e.WrappedKeys[deviceID]
		if !ok {
			return Envelope{}, false
		}
		out.WrappedKey = wk
		return out, true
	}
	if e.WrappedKey == "" {
		return Envelope{}, false
	}
	return out, true
}

// Devices lists the device ids the envelope carries wrapped keys for.
// A single-recipient envelope reports nil, meaning "any resolved device".
func (e Envelope) Devices() []string {
	if len(e.WrappedKeys) == 0 {
		return nil
	}
	ids := make([]string, 0, len(e.WrappedKeys))
	for id := range e.WrappedKeys {
		ids = append(ids, id)
	}
	return ids
}
