package taxonomy

// DefaultReference returns the built-in cost-line catalog. Callers get a
// fresh slice and may modify it before building a table.
func DefaultReference() []Entry {
	return []Entry{
		{ID: "MOD-ING", AltCode: "MOD-001", Category: LaborCategory, Description: "Ingenieros de soporte", IsLabor: true},
		{ID: "MOD-LEAD", AltCode: "MOD-002", Category: LaborCategory, Description: "Ingeniero líder / coordinador", IsLabor: true},
		{ID: "MOD-SDM", AltCode: "MOD-003", Category: LaborCategory, Description: "Service Delivery Manager", IsLabor: true},
		{ID: "MOD-OT", AltCode: "MOD-004", Category: LaborCategory, Description: "Horas extra", IsLabor: true},
		{ID: "MOD-CONT", AltCode: "MOD-005", Category: LaborCategory, Description: "Contratistas técnicos internos", IsLabor: true},
		{ID: "MOD-EXT", AltCode: "MOD-006", Category: LaborCategory, Description: "Contratistas externos", IsLabor: true},
		{ID: "GSV-REU", AltCode: "GSV-001", Category: "Gastos de Servicio", Description: "Reuniones de seguimiento"},
		{ID: "GSV-RPT", AltCode: "GSV-002", Category: "Gastos de Servicio", Description: "Informes mensuales"},
		{ID: "GSV-AUD", AltCode: "GSV-003", Category: "Gastos de Servicio", Description: "Auditoría técnica"},
		{ID: "VIA-INT", AltCode: "VIA-001", Category: "Viáticos", Description: "Viajes internacionales"},
		{ID: "VIA-NAC", AltCode: "VIA-002", Category: "Viáticos", Description: "Viajes nacionales"},
		{ID: "INF-CLOUD", AltCode: "INFRA-001", Category: "Infraestructura", Description: "Servicios cloud"},
		{ID: "INF-DC", AltCode: "INFRA-002", Category: "Infraestructura", Description: "Hosting en datacenter"},
		{ID: "INF-STO", AltCode: "INFRA-003", Category: "Infraestructura", Description: "Almacenamiento y respaldo"},
		{ID: "TEC-LIC-MON", AltCode: "TEC-001", Category: "Tecnología", Description: "Licencias de monitoreo"},
		{ID: "TEC-ITSM", AltCode: "TEC-002", Category: "Tecnología", Description: "Herramientas ITSM"},
		{ID: "TEC-HW-RPL", AltCode: "TEC-003", Category: "Tecnología", Description: "Reemplazo de hardware"},
		{ID: "TEL-CCTV", AltCode: "TEL-001", Category: "Telecomunicaciones", Description: "Circuitos y conectividad"},
		{ID: "SEC-SOC", AltCode: "SEC-001", Category: "Seguridad", Description: "Monitoreo SOC"},
		{ID: "CAP-TRN", AltCode: "CAP-001", Category: "Capacitación", Description: "Capacitación del equipo"},
		{ID: "SUB-PART", AltCode: "SUB-001", Category: "Subcontratos", Description: "Partners de entrega"},
		{ID: "CTR-FEE", AltCode: "CTR-001", Category: "Contingencia", Description: "Reserva de contingencia"},
	}
}
