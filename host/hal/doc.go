// Package hal defines the downstream Hardware Abstraction Layer of an SD host
// controller used by the card-mode adaptation layer in package host.
//
// The HAL exposes only what the adaptation layer needs from the peripheral:
//
//   - One-time bring-up, software reset of the CMD/DAT lines and error status
//   - Bus width, signaling voltage, card power and clock control
//   - Command issue with a response type, CRC/index checks and a command type
//   - DMA data-transfer configuration and completion wait
//   - Card-detect and write-protect pins
//
// All bit-level response handling and error classification lives above the
// HAL, in package host. A Controller never interprets command flags of the
// upstream driver.
//
// # Response Register Layout
//
// [Controller.Response] returns the response registers as stored by an SDHCI
// compatible controller: a 48-bit response surfaces bits [39:8] in word 0, a
// 136-bit response surfaces bits [127:8] across words 0..3 (word 0 holds the
// least significant bits). Start bit, transmission bit and CRC are never
// surfaced.
//
// # Implementing a HAL
//
//	type MyController struct {
//	    // Platform-specific fields
//	}
//
//	func (c *MyController) Init(cfg *hal.BusConfig) error {
//	    // Route pins, enable clocks, reset the controller
//	    return nil
//	}
//
//	// ... implement remaining Controller methods
//
// A simulated controller with an in-memory SD card is available in
// [github.com/ardnew/softmmc/host/hal/sim].
package hal
