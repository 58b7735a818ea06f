package mysql

const insertSubscriptionSQL = `
INSERT INTO subscriptions
  (id, email, name, subscribed_at)
VALUES
  (?, ?, ?, ?)
`

// ER_DUP_ENTRY, raised by the UNIQUE index on subscriptions.email.
const errDupEntry = 1062
