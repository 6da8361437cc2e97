// Package card is a minimal SD memory card driver on top of the card-mode
// callback table in github.com/ardnew/softmmc/host.
//
// It performs card identification, decodes the CSD and CID registers and
// moves 512-byte blocks with single- and multi-block commands. It exists to
// exercise the host layer the way a full storage stack would:
//
//	hw := host.New(nil)
//	if err := hw.Configure(0, &host.Config{Controller: ctl}); err != nil {
//	    return err
//	}
//
//	sd := card.New(hw, 0, card.WithRetries(3))
//	if err := sd.Init(ctx); err != nil {
//	    return err
//	}
//	n, err := sd.Read(0, 8, buf)
//
// A [Card] holds a mutex for its unit, which makes it the serializing caller
// the host layer expects. [InitAll] brings up cards on different units in
// parallel.
//
// Failed command responses are retried ([WithRetries]). Failed data phases
// are not: the returned error wraps the [host.CardError], so callers can test
// for a class with errors.Is(err, pkg.ErrCRC) or for the exact result with
// errors.As.
package card
