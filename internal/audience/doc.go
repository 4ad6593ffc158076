// Package audience derives a lookalike audience profile from normalized
// customer records.
//
// A Builder ranks the most common demographics, interests and behaviors,
// scores the completeness of the data and estimates the reach of a
// lookalike audience. The reach estimate scales the customer count by a
// random factor drawn from an injectable RandomSource so tests can fix it.
package audience
