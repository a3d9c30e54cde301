package storage

// LookupTables holds the store and location name tables
const LookupTables = `
CREATE TABLE IF NOT EXISTS stores (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS locations (
	id         TEXT PRIMARY KEY,
	store_id   TEXT REFERENCES stores(id),
	name       TEXT NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);`

// FactTables holds the daily sales and purchase order facts
const FactTables = `
CREATE TABLE IF NOT EXISTS daily_sales (
	id                 BIGSERIAL PRIMARY KEY,
	sale_date          DATE NOT NULL,
	store_id           TEXT,
	location_id        TEXT,
	pickup_location_id TEXT,
	category           TEXT,
	product            TEXT,
	employee           TEXT,
	payment_method     TEXT,
	order_type         TEXT,
	order_count        INTEGER NOT NULL DEFAULT 0,
	quantity_sold      NUMERIC(14,3) NOT NULL DEFAULT 0,
	total_revenue      NUMERIC(14,2) NOT NULL DEFAULT 0,
	total_cogs         NUMERIC(14,2) NOT NULL DEFAULT 0,
	total_tax          NUMERIC(14,2) NOT NULL DEFAULT 0,
	total_discounts    NUMERIC(14,2) NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS purchase_orders (
	id             BIGSERIAL PRIMARY KEY,
	po_number      TEXT NOT NULL,
	order_date     DATE NOT NULL,
	store_id       TEXT,
	location_id    TEXT,
	supplier_name  TEXT,
	status         TEXT,
	payment_status TEXT,
	item_count     INTEGER NOT NULL DEFAULT 0,
	total_quantity NUMERIC(14,3) NOT NULL DEFAULT 0,
	total_amount   NUMERIC(14,2) NOT NULL DEFAULT 0,
	amount_paid    NUMERIC(14,2) NOT NULL DEFAULT 0
);`

// FactViews flattens the facts with their store and location names
const FactViews = `
CREATE OR REPLACE VIEW v_daily_sales_detail AS
SELECT
	s.*,
	st.name AS store_name,
	l.name  AS location_name
FROM daily_sales s
LEFT JOIN stores st   ON st.id = s.store_id
LEFT JOIN locations l ON l.id = s.location_id;

CREATE OR REPLACE VIEW v_purchase_order_detail AS
SELECT
	po.*,
	po.total_amount - po.amount_paid AS amount_outstanding,
	st.name AS store_name,
	l.name  AS location_name
FROM purchase_orders po
LEFT JOIN stores st   ON st.id = po.store_id
LEFT JOIN locations l ON l.id = po.location_id;`

// FactIndices speeds up the date and store filters used by reports
const FactIndices = `
CREATE INDEX IF NOT EXISTS idx_daily_sales_date ON daily_sales(sale_date DESC);
CREATE INDEX IF NOT EXISTS idx_daily_sales_store_location ON daily_sales(store_id, location_id);
CREATE INDEX IF NOT EXISTS idx_purchase_orders_date ON purchase_orders(order_date DESC);
CREATE INDEX IF NOT EXISTS idx_purchase_orders_store_location ON purchase_orders(store_id, location_id);`
