package calc

// Status is the set of indicator lamps shown next to the display.
type Status struct {
	Acc1  bool     `json:"acc1"`
	GT    bool     `json:"gt"`
	Error bool     `json:"error"`
	Minus bool     `json:"minus"`
	K     *float64 `json:"k,omitempty"`
}

// MemoryStatus describes the memory register after a memory key.
type MemoryStatus struct {
	Mode      MemoryMode `json:"mode"`
	Stack     []float64  `json:"stack,omitempty"`
	Memory    float64    `json:"memory"`
	HasMemory bool       `json:"has_memory"`
}

// Observer receives engine notifications synchronously, on the goroutine
// that called into the engine. Nothing is delivered while a tape replays
// except the final display, status and tape refresh.
type Observer interface {
	DisplayUpdated(display string)
	TapePrinted(entry Entry)
	TapeRefreshed(entries []Entry)
	StatusUpdated(status Status)
	MemoryUpdated(status MemoryStatus)
	ErrorRaised(message string)
	RateUpdated(rate float64)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnDisplay func(string)
	OnPrint   func(Entry)
	OnRefresh func([]Entry)
	OnStatus  func(Status)
	OnMemory  func(MemoryStatus)
	OnError   func(string)
	OnRate    func(float64)
}

func (f ObserverFuncs) DisplayUpdated(display string) {
	if f.OnDisplay != nil {
		f.OnDisplay(display)
	}
}

func (f ObserverFuncs) TapePrinted(entry Entry) {
	if f.OnPrint != nil {
		f.OnPrint(entry)
	}
}

func (f ObserverFuncs) TapeRefreshed(entries []Entry) {
	if f.OnRefresh != nil {
		f.OnRefresh(entries)
	}
}

func (f ObserverFuncs) StatusUpdated(status Status) {
	if f.OnStatus != nil {
		f.OnStatus(status)
	}
}

func (f ObserverFuncs) MemoryUpdated(status MemoryStatus) {
	if f.OnMemory != nil {
		f.OnMemory(status)
	}
}

func (f ObserverFuncs) ErrorRaised(message string) {
	if f.OnError != nil {
		f.OnError(message)
	}
}

func (f ObserverFuncs) RateUpdated(rate float64) {
	if f.OnRate != nil {
		f.OnRate(rate)
	}
}

// NopObserver discards every notification.
type NopObserver struct{}

func (NopObserver) DisplayUpdated(string)      {}
func (NopObserver) TapePrinted(Entry)          {}
func (NopObserver) TapeRefreshed([]Entry)      {}
func (NopObserver) StatusUpdated(Status)       {}
func (NopObserver) MemoryUpdated(MemoryStatus) {}
func (NopObserver) ErrorRaised(string)         {}
func (NopObserver) RateUpdated(float64)        {}
