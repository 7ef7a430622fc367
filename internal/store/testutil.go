package store

// SampleSchema is a small Chinook subset used by tests and the demo
// bootstrap path. The full Chinook script loads the same tables.
const SampleSchema = `
CREATE TABLE Artist (
    ArtistId INTEGER PRIMARY KEY,
    Name TEXT
);
CREATE TABLE Album (
    AlbumId INTEGER PRIMARY KEY,
    Title TEXT,
    ArtistId INTEGER REFERENCES Artist(ArtistId)
);
CREATE TABLE Genre (
    GenreId INTEGER PRIMARY KEY,
    Name TEXT
);
CREATE TABLE Track (
    TrackId INTEGER PRIMARY KEY,
    Name TEXT,
    AlbumId INTEGER REFERENCES Album(AlbumId),
    GenreId INTEGER REFERENCES Genre(GenreId),
    UnitPrice REAL
);
CREATE TABLE Employee (
    EmployeeId INTEGER PRIMARY KEY,
    FirstName TEXT,
    Title TEXT,
    Email TEXT
);
CREATE TABLE Customer (
    CustomerId INTEGER PRIMARY KEY,
    FirstName TEXT,
    Email TEXT,
    Phone TEXT,
    SupportRepId INTEGER REFERENCES Employee(EmployeeId)
);
CREATE TABLE Invoice (
    InvoiceId INTEGER PRIMARY KEY,
    CustomerId INTEGER REFERENCES Customer(CustomerId),
    InvoiceDate TEXT,
    Total REAL
);
CREATE TABLE InvoiceLine (
    InvoiceLineId INTEGER PRIMARY KEY,
    InvoiceId INTEGER REFERENCES Invoice(InvoiceId),
    TrackId INTEGER REFERENCES Track(TrackId),
    UnitPrice REAL,
    Quantity INTEGER
);
`

// SampleData seeds a handful of rows that exercise every tool query.
const SampleData = `
INSERT INTO Artist (ArtistId, Name) VALUES
    (1, 'U2'),
    (2, 'The Rolling Stones'),
    (3, 'Miles Davis');
INSERT INTO Album (AlbumId, Title, ArtistId) VALUES
    (1, 'Achtung Baby', 1),
    (2, 'War', 1),
    (3, 'Sticky Fingers', 2),
    (4, 'Kind of Blue', 3);
INSERT INTO Genre (GenreId, Name) VALUES
    (1, 'Rock'),
    (2, 'Jazz');
INSERT INTO Track (TrackId, Name, AlbumId, GenreId, UnitPrice) VALUES
    (1, 'One', 1, 1, 0.99),
    (2, 'Mysterious Ways', 1, 1, 0.99),
    (3, 'Sunday Bloody Sunday', 2, 1, 0.99),
    (4, 'Brown Sugar', 3, 1, 0.99),
    (5, 'So What', 4, 2, 1.29);
INSERT INTO Employee (EmployeeId, FirstName, Title, Email) VALUES
    (1, 'Jane', 'Sales Support Agent', 'jane@tunedesk.example');
INSERT INTO Customer (CustomerId, FirstName, Email, Phone, SupportRepId) VALUES
    (1, 'Luis', 'luisg@embraer.com.br', '+5512391244', 1),
    (2, 'Leonie', 'leonekohler@surfeu.de', '+4907112344', 1);
INSERT INTO Invoice (InvoiceId, CustomerId, InvoiceDate, Total) VALUES
    (1, 1, '2024-01-15 00:00:00', 9.90),
    (2, 1, '2024-06-02 00:00:00', 3.96),
    (3, 2, '2024-03-10 00:00:00', 5.94);
INSERT INTO InvoiceLine (InvoiceLineId, InvoiceId, TrackId, UnitPrice, Quantity) VALUES
    (1, 1, 1, 0.99, 2),
    (2, 2, 5, 1.29, 1),
    (3, 3, 4, 0.99, 3);
`
