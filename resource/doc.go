// Package resource maps guest-visible handles to host values.
//
// The bridge hands the guest a plain i32 for every host future it starts.
// The Table keeps the future behind that integer, tagged with a type ID so a
// handle from one operation cannot be polled through another:
//
//	const TypeLoad resource.TypeID = 1
//
//	table := resource.NewTable()
//	loads := resource.NewTyped[*Future](table, TypeLoad)
//
//	h, err := loads.Insert(fut)
//	fut, ok := loads.Get(h)
//	fut, ok = loads.Remove(h)
//
// Handle 0 is reserved and never returned. Removed handles are reused.
//
// # Observers
//
// Register observers to track lifecycle events, for example to export the
// number of outstanding futures:
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    switch e.Type {
//	    case resource.EventCreated:
//	        outstanding.Inc()
//	    case resource.EventDropped:
//	        outstanding.Dec()
//	    }
//	}))
//
// Values are not garbage collected. Close the table when the invocation ends
// to drop everything still live.
package resource
