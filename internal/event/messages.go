package event

// Message is a control message broadcast on the Bus. The set of variants
// is closed; consumers switch exhaustively and treat new variants as an
// explicit addition.
type Message interface {
	message()
}

// ShutDown asks every loop to terminate. Publishing it also sets the
// bus-wide shutdown flag.
type ShutDown struct{}

// Reload tells connected browsers to refresh.
type Reload struct {
	Reason string
}

// SrcChanged reports a change under the source tree.
type SrcChanged struct{}

// StyleChanged reports a change to a style sheet.
type StyleChanged struct{}

// AssetsChanged reports a change under the assets tree and carries the
// originating filesystem change.
type AssetsChanged struct {
	Change Change
}

func (ShutDown) message()      {}
func (Reload) message()        {}
func (SrcChanged) message()    {}
func (StyleChanged) message()  {}
func (AssetsChanged) message() {}
