package domain

// LogStore es un canal lateral de diagnóstico compartido entre procesos.
// Se inyecta como capacidad, nunca como estado global: ninguna lógica del
// núcleo depende de él.
type LogStore interface {
	// Append añade una línea al final del log de demostración.
	Append(line string)

	// Recent devuelve hasta n líneas, la más nueva primero.
	Recent(n int) []string
}
