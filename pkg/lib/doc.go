// Package lib provides a Go SDK to borrow and read library books programmatically.
//
// It wires the book database, the library providers, the login states and the
// task workers, and exposes every library operation through a [Client]. It is
// useful for scripting, automation and building readers on top of lendr.
//
// # Quick Start
//
// Create a client, select a profile and add a library account:
//
//	client, err := lib.New(ctx, lib.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close(ctx)
//
//	p, _ := client.ProfileCreate(ctx, profile.CreateRequest{DisplayName: "Reader"}).Get(ctx)
//	client.ProfileSelect(ctx, p.ID).Get(ctx)
//	client.ProvidersRefresh(ctx).Get(ctx)
//	res, _ := client.ProfileAccountCreate(ctx, providerID).Get(ctx)
//
// # Tasks
//
// Long running operations (login, sync, borrow, revoke) return a future of a
// task result. A result carries every step the task went through, failed
// results end with the step that failed:
//
//	res, _ := client.BooksSync(ctx, accountID).Get(ctx)
//	if res.Failed() {
//	    for _, s := range res.Steps {
//	        fmt.Println(s.Description, s.Status, s.Message)
//	    }
//	}
//
// Finished tasks are kept in the task history, see [controller.Controller.TaskHistory].
//
// # Events
//
// Account, profile, book and provider changes are published on event subjects.
// Handlers run synchronously on the publisher goroutine and must not block:
//
//	unsubscribe := client.BookEvents().Subscribe(func(e model.BookEvent) {
//	    fmt.Println(e.Type, e.BookID)
//	})
//	defer unsubscribe()
//
// # DRM
//
// Adobe DRM protected books need a [DRMConnector] set on [Config].DRM. Without
// it logins skip the device activation and ACSM content can't be fulfilled.
//
// # Thread Safety
//
// A [Client] is safe for concurrent use from multiple goroutines. The storage
// uses SQLite with WAL mode and the tasks run on a bounded worker pool.
package lib
