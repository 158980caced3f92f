// Package shell wraps circulation operations with retry handling for concurrency conflicts.
//
// The storage layer reports a lost race as circulation.ErrConflict. For a borrow that targets a
// book (any free copy), such a conflict is transient: another free copy may still exist, so the
// BorrowingHandler retries the borrow with exponential backoff and reports the retry metadata
// as a HandlerResult. All other rejections fail fast.
package shell
