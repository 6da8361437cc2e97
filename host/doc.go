// Package host adapts SD host controllers to the card-mode HW callback table
// of an SD/MMC storage driver.
//
// The upstream driver owns the card protocol: it decides which commands to
// send, parses responses and sequences initialization. This package only
// translates each callback into operations on a [hal.Controller] from the
// github.com/ardnew/softmmc/host/hal package, and translates the controller's
// status back into the driver's [CardError] taxonomy.
//
// # Units
//
// Up to [NumUnits] controllers are addressed by a 0-based unit index. Each
// unit is attached to a caller-owned [Config] with [CardMode.Configure]; the
// hardware bring-up happens on the first [CardMode.Init] and is not repeated.
//
// # Two-phase commands
//
// [CardMode.SendCmd] reports nothing. The controller's verdict is recorded
// and surfaces on the following [CardMode.GetResponse]: a rejected command
// reads as [ResponseTimeout]. Data commands consume the buffer, block length
// and block count set through SetDataPointer, SetBlockLen and SetNumBlocks,
// and their data phase is awaited with [CardMode.ReadData] or
// [CardMode.WriteData].
//
// # Error recovery
//
// Every failure reported to the driver is followed by a software reset of the
// CMD and DAT lines and a clear of the controller's error status, so the next
// command starts on a clean controller.
//
// # Responses
//
// [PutResponse] converts the controller's 32-bit response words into the
// byte layout the driver parses: 48-bit responses occupy offsets 1..4 of a
// 6-byte buffer, 136-bit responses offsets 0..15 of a 17-byte buffer.
package host
