// Package ops contains the concrete operators of the dataflow engine.
//
// Operators exchange Row payloads. Every operator computes the column map of
// its node during prepare and reads it back at run time, so rows never carry
// column names.
//
// Operators that implement an Inliner can run with a zero queue size. They
// then execute on the goroutine of whoever reads them, without a task or an
// output connector of their own.
package ops
