package cache

// Key formats are shared between the clients that populate entries and the
// catalog consumer that invalidates them.

func UserKey(userID string) string { return "user:" + userID }

func ProductKey(productID string) string { return "product:" + productID }
