// Package rcp models the radio co-processor bus as a Go contract
// (spec.md section 1: "out of scope... contract only"; section 6): a
// byte-oriented, single-reader/single-writer request/indication bus
// carrying pre-framed 802.15.4 MAC PDUs.
//
// Grounded on internal/agh/agh.go's ConfigModifier/command-constructor
// shape: a narrow interface the core depends on, plus a fake
// implementation for tests (agh.NewCommandConstructor's pattern).
package rcp

import "time"

// TxStatus is a tx_cnf's outcome (spec.md section 6).
type TxStatus uint8

// TxStatus values.
const (
	TxSuccess TxStatus = iota
	TxNoAck
	TxChannelAccessFail
	TxTimedOut
)

// FHSSType selects the frequency-hopping behavior of a data_tx request
// (spec.md section 6).
type FHSSType uint8

// FHSSType values.
const (
	FHSSUnicast FHSSType = iota
	FHSSAsync
)

// TxHandle identifies an outstanding data_tx request so its matching
// TxCnf can be correlated.
type TxHandle uint32

// DataTxRequest is the data_tx request primitive (spec.md section 6).
type DataTxRequest struct {
	Frame            []byte
	Handle           TxHandle
	FHSSType         FHSSType
	NeighborSchedule []byte
	FrameCounterHint uint32
	RateList         []uint8
	ModeSwitch       bool
}

// RadioConfig is the set_radio request payload; fields are opaque to
// the core beyond "apply this configuration" (spec.md section 1: the
// 802.15.4 MAC/LLC is collapsed to a narrow contract).
type RadioConfig struct {
	ChannelPlan uint8
	ChannelMask []byte
	PHYModeID   uint8
}

// Bus is the RCP request surface the core drives. A real
// implementation serializes these onto the byte-oriented transport;
// this module only depends on the interface.
type Bus interface {
	DataTx(req DataTxRequest) error
	SetSecKey(index uint8, gak []byte, frameCounter uint32) error
	SetRadio(cfg RadioConfig) error
	SetFHSSUnicast(dwellMS uint32, chanMask []byte) error
	SetFHSSAsync(dwellMS uint32, chanMask []byte) error
	ReqRadioEnable() error
	ReqRadioReset() error
}

// RxInd is the rx_ind indication (spec.md section 6): an inbound
// 802.15.4 data frame.
type RxInd struct {
	Frame       []byte
	LQI         uint8
	RSSI        int8
	TimestampUS uint64
}

// TxCnf is the tx_cnf indication: the fate of a previously-submitted
// DataTxRequest.
type TxCnf struct {
	Handle      TxHandle
	Status      TxStatus
	Frame       []byte
	HasFrame    bool
	TimestampUS uint64
}

// ResetInd is the reset_ind indication, reported once at RCP bring-up.
type ResetInd struct {
	VersionFW  string
	VersionAPI string
	RFList     []uint8
}

// MinAPIVersion is the minimum reset_ind API version the core
// requires (spec.md section 6: "the core requires api >= 2.0.0").
const MinAPIVersion = "2.0.0"

// Indications is the callback surface [Bus] implementations deliver
// RCP indications through. No readiness fd is registered with the
// scheduler for it; the bus invokes these callbacks itself.
type Indications struct {
	OnRxInd    func(RxInd)
	OnTxCnf    func(TxCnf)
	OnResetInd func(ResetInd)
}

// Fake is a no-op [Bus] for tests, mirroring arpdb.Empty's role in
// AdGuardHome: every request succeeds and records what was asked of
// it, with nothing going out over a wire.
type Fake struct {
	Sent []DataTxRequest

	LastSecKeyIndex uint8
	LastGAK         []byte

	LastRadio RadioConfig

	EnabledCount int
	ResetCount   int

	// FailNext, if non-nil, is returned (and cleared) by the next call
	// to any method, letting tests exercise the error path once.
	FailNext error
}

var _ Bus = (*Fake)(nil)

func (f *Fake) takeErr() error {
	if f.FailNext == nil {
		return nil
	}

	err := f.FailNext
	f.FailNext = nil

	return err
}

// DataTx implements [Bus].
func (f *Fake) DataTx(req DataTxRequest) error {
	if err := f.takeErr(); err != nil {
		return err
	}

	f.Sent = append(f.Sent, req)

	return nil
}

// SetSecKey implements [Bus].
func (f *Fake) SetSecKey(index uint8, gak []byte, _ uint32) error {
	if err := f.takeErr(); err != nil {
		return err
	}

	f.LastSecKeyIndex, f.LastGAK = index, gak

	return nil
}

// SetRadio implements [Bus].
func (f *Fake) SetRadio(cfg RadioConfig) error {
	if err := f.takeErr(); err != nil {
		return err
	}

	f.LastRadio = cfg

	return nil
}

// SetFHSSUnicast implements [Bus].
func (f *Fake) SetFHSSUnicast(uint32, []byte) error { return f.takeErr() }

// SetFHSSAsync implements [Bus].
func (f *Fake) SetFHSSAsync(uint32, []byte) error { return f.takeErr() }

// ReqRadioEnable implements [Bus].
func (f *Fake) ReqRadioEnable() error {
	if err := f.takeErr(); err != nil {
		return err
	}

	f.EnabledCount++

	return nil
}

// ReqRadioReset implements [Bus].
func (f *Fake) ReqRadioReset() error {
	if err := f.takeErr(); err != nil {
		return err
	}

	f.ResetCount++

	return nil
}

// txTimeout is how long the scheduler should wait for a TxCnf before
// treating a DataTx as lost; kept here since it's an RCP-bus-specific
// tunable rather than a generic scheduler one.
const txTimeout = 5 * time.Second
