package indicator

import "math"

// HMA calculates the Hull Moving Average:
//
//	HMA(n) = WMA(2*WMA(n/2) - WMA(n), floor(sqrt(n)))
type HMA struct {
	half *WMA
	full *WMA
	out  *WMA
}

// NewHMA creates a new HMA indicator with the given period (minimum 2).
func NewHMA(period int) *HMA {
	if period < 2 {
		period = 2
	}
	return &HMA{
		half: NewWMA(period / 2),
		full: NewWMA(period),
		out:  NewWMA(int(math.Floor(math.Sqrt(float64(period))))),
	}
}

func (h *HMA) Name() string { return "HMA" }

func (h *HMA) Update(price float64) {
	h.half.Update(price)
	h.full.Update(price)
	if !h.full.Ready() {
		return
	}
	h.out.Update(2*h.half.Value() - h.full.Value())
}

func (h *HMA) Value() float64 { return h.out.Value() }
func (h *HMA) Ready() bool    { return h.out.Ready() }
