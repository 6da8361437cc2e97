// Package mmc inventories the SD/MMC cards a Linux kernel has enumerated.
//
// When the kernel's own SD host driver owns the controller, the card-mode
// layer cannot drive it, but the card registers are still readable from
// sysfs. [Scan] lists the cards under /sys/bus/mmc/devices and decodes their
// CID and CSD with the card package, so a card in a desktop reader can be
// compared with one brought up through the card-mode layer.
//
// [Monitor] listens for kernel uevents of the mmc subsystem and reports
// insertions and removals:
//
//	m, err := mmc.NewMonitor(mmc.SysfsPath)
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	for {
//	    evt, err := m.Next(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(evt.Action, evt.Card.Name)
//	}
package mmc
