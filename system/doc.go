// Package system implements the host side of the application state API.
//
// New pairs an API with a StorageGuard. The API exposes the state
// operations a guest imports (load, load_and_lock, store_and_unlock) and
// reaches storage through a slot that the guard empties on Release:
//
//	api, guard := system.New(forwarder, app)
//	defer guard.Release()
//	for _, fn := range api.HostFunctions() {
//		// register fn.Call under abi.SystemModule/fn.Name
//	}
//
// Reads are host futures. A "_new" import captures the storage capability
// and returns a handle; "_poll" starts the read on first use and writes a
// poll record for the guest. Storage failures reach the guest as error text.
//
// Access after Release, or concurrent access from the guest, panics with an
// invariant error rather than returning one.
package system
