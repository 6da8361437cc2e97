// Package sim provides a simulated SD host controller for the softmmc host
// layer.
//
// [Controller] implements [hal.Controller] in process, with an SD memory
// card attached. It is meant for tests and for running the card driver
// without hardware.
//
// # Card model
//
// The card follows the SD physical layer state machine (idle, ready, ident,
// stby, tran, data, rcv) and answers:
//
//   - CMD0, CMD2, CMD3, CMD7, CMD8, CMD9, CMD10, CMD12, CMD13, CMD15, CMD16
//   - CMD17, CMD18, CMD24, CMD25 (block data through the configured buffer)
//   - CMD55 followed by ACMD6 or ACMD41
//
// Illegal commands get no response, which the controller reports as a
// command timeout. Responses use the controller's register layout: 48-bit
// responses in word 0, 136-bit responses as bits [127:8] over four words.
//
// Capacity, addressing mode (SDHC block addressing or SDSC byte
// addressing), the write-protect switch and the card serial are set with
// options:
//
//	ctl, err := sim.New(
//	    sim.WithCapacity(1<<20),
//	    sim.WithWriteProtect(false),
//	)
//
// # Error injection
//
// Faults are injected one at a time and consumed by the operation they
// target:
//
//   - [Controller.InjectCommandError] latches error flags for a command index
//   - [Controller.InjectDataError] latches error flags for the next transfer
//   - [Controller.RejectNext] makes SendCommand fail outright
//   - [Controller.FailNextWait] makes WaitTransferComplete fail
//
// # Recording
//
// Every command, data configuration, software reset and bus width change is
// recorded and can be inspected after the fact, for example with
// [Controller.CommandIndices] and [Controller.Resets].
package sim
