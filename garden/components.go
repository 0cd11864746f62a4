package garden

import "github.com/pthm-cable/sap/symbols"

// Plant holds a plant's identity.
type Plant struct {
	ID         uint32
	Generation int // diffusion calls completed on this plant
}

// Structure holds the plant's symbol string. Rewrite mode swaps Str for the
// produced string each generation; in-place mode mutates it.
type Structure struct {
	Str *symbols.String
}

// Transport holds the per-plant diffusion settings.
type Transport struct {
	Steps      int
	Multiplier float32
}

// Vitals is the summary of the plant's last diffusion call.
type Vitals struct {
	Total     float64 // sum of node amounts after the call
	Nodes     int
	Slots     int
	Saturated int
	Failed    bool // last call returned an error and left Str unchanged
}
