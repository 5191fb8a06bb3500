package indicator

// WMA calculates a linearly Weighted Moving Average: the newest price has
// weight period, the oldest weight 1.
type WMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int
	denom   float64
	current float64
}

// NewWMA creates a new WMA indicator with the given period.
func NewWMA(period int) *WMA {
	if period < 1 {
		period = 1
	}
	return &WMA{
		period: period,
		buf:    make([]float64, period),
		denom:  float64(period*(period+1)) / 2,
	}
}

func (w *WMA) Name() string { return "WMA" }

func (w *WMA) Update(price float64) {
	w.buf[w.idx] = price
	w.idx = (w.idx + 1) % w.period
	w.count++

	if w.count < w.period {
		return
	}

	// Oldest element sits at idx after the write.
	var sum float64
	for i := 0; i < w.period; i++ {
		sum += w.buf[(w.idx+i)%w.period] * float64(i+1)
	}
	w.current = sum / w.denom
}

func (w *WMA) Value() float64 { return w.current }
func (w *WMA) Ready() bool    { return w.count >= w.period }
