// Package database provides prepared statements that survive transient
// connection failures, plus the pool and session plumbing around them.
//
// A StatementProxy wraps a Statement prepared on a Connection. When an
// operation fails with a driver error the Classifier marks transient, the
// proxy reconnects the connection (unless a concurrent caller already did,
// detected through Connection.Round), re-prepares the original query and
// retries, up to three attempts in total. Any other failure is returned to
// the caller unchanged.
//
//	db, err := database.Open(ctx, cfg, log)
//	stmt, err := db.Prepare(ctx, "UPDATE stock SET qty = qty - ? WHERE sku = ?")
//	res, err := stmt.Exec(ctx, 1, "A-100")
//
// SQLConn adapts one dedicated *sql.Conn to Connection, and Dialer produces
// connections by resolving a service name through the discovery package.
package database
