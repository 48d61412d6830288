/*
Package ddb provides the DynamoDB terminal backend.

All classes share one table. Each identified record maps its identity
into the PK/SK pair through a macro template ("USER#{ID}" by default,
overridable per class with SetIndexMap); field values travel in their
portable wire form and are marshalled with the attributevalue package.

Recalls run as a Scan with a native FilterExpression covering the parts
of the expression the condition grammar can express exactly. Whenever
the native filter is imperfect (an opaque predicate, an unsupported
node, or a field whose wire form does not preserve ordering) the full
expression is re-applied locally, so results match the in-memory
backend exactly.

Schema state lives in a per-class marker item listing the stored fields
and their types; CreateStorage reconciles the marker against the model
under the caller's conflict mode.
*/
package ddb
